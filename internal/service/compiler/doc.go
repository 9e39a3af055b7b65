// Package compiler turns a setup manifest into a standalone setup
// executable.
//
// It stages the manifest's file rules, archives them into a compressed
// payload, and appends payload plus metadata to the installer stub binary.
// A build report is written next to the produced executable.
package compiler
