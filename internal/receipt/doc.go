// Package receipt implements persistence for the install receipt.
//
// A receipt records everything an installation changed on the machine:
// files with digests, shortcuts, registry keys and the selected tasks. The
// uninstaller treats it as the single source of truth and removes nothing
// that is not listed in it. The FileRepository stores the receipt as JSON
// in the install directory and exposes a Repository interface the
// installer and uninstaller services depend on.
package receipt
