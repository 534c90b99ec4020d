// Package session runs a scenario against the engines bound by the
// registry. It owns every bound channel for the length of the run, issues
// commands strictly one at a time, and sends EXIT to each engine that took
// part once the scenario is over.
package session
