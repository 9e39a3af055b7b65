// Package common holds helpers shared by the installer and uninstaller
// services.
//
// It provides the marker file guarding against concurrent setup runs, the
// running-process guard built on go-ps, executable copying, and detection of
// the current system actor (hostname/username) for the install receipt.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
