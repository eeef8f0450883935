// Package repack makes dynamically-linked ELF executables, shared
// libraries, and interpreter scripts relocatable and self-contained so
// they can live in a content-addressed resource store and run without
// depending on fixed absolute paths.
package repack
