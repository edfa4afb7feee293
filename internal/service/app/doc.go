// Package app assembles the SOS controller from a settings file and exposes
// one Run function per CLI command: activate, voice, send-location, history
// and check-safety. The cobra layer stays thin and delegates here.
package app
