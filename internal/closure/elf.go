package closure

import "debug/elf"

// elfImportedLibraries and elfSoname are package vars (rather than direct
// calls to debug/elf) so tests can substitute canned library graphs
// without constructing full synthetic ELF dynamic sections.
var (
	elfImportedLibraries = func(path string) ([]string, error) {
		f, err := elf.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return f.ImportedLibraries()
	}

	elfSoname = func(path string) (string, bool, error) {
		f, err := elf.Open(path)
		if err != nil {
			return "", false, err
		}
		defer f.Close()
		sonames, err := f.DynString(elf.DT_SONAME)
		if err != nil {
			// Not every ELF object carries a dynamic section (e.g. it's
			// not a shared object at all); that's not an error here, just
			// "no SONAME".
			return "", false, nil
		}
		if len(sonames) == 0 {
			return "", false, nil
		}
		return sonames[0], true, nil
	}
)
