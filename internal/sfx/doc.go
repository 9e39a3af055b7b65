// Package sfx appends and reads the self-extracting trailer of setup
// executables.
//
// A setup executable is the installer stub binary with three sections
// appended: a JSON meta block, the compressed payload, and a fixed-size
// footer holding both section lengths and a magic marker. The stub locates
// its own trailer through Open at run time; the compiler writes it through
// Attach at build time.
package sfx
