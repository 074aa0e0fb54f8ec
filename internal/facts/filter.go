package facts

// FilterTablesByFiles returns a new Tables object containing only rows whose
// file is present in the provided file set.
func FilterTablesByFiles(tables Tables, files map[string]bool) Tables {
	if len(files) == 0 {
		return emptyTables()
	}
	return filter(tables,
		func(f string) bool { return files[f] },
		func(string) bool { return true },
		func(string) bool { return true })
}

// FilterTablesByScopes keeps rows of the given instantiation scopes. Design
// rows are kept; signal declarations are kept for modules that one of the
// scopes instantiates.
func FilterTablesByScopes(tables Tables, scopes map[string]bool) Tables {
	if len(scopes) == 0 {
		return emptyTables()
	}
	modules := make(map[string]bool)
	for _, row := range tables.Instances {
		if scopes[row.Scope] {
			modules[row.Module] = true
		}
	}
	return filter(tables,
		func(string) bool { return true },
		func(s string) bool { return scopes[s] },
		func(m string) bool { return modules[m] })
}

// FilterDeltaByFiles returns a new Delta containing only rows for the specified files.
func FilterDeltaByFiles(delta Delta, files map[string]bool) Delta {
	if len(files) == 0 {
		return Delta{
			Added:   emptyTables(),
			Removed: emptyTables(),
		}
	}
	return Delta{
		Added:   FilterTablesByFiles(delta.Added, files),
		Removed: FilterTablesByFiles(delta.Removed, files),
	}
}

func filter(tables Tables, file, scope, module func(string) bool) Tables {
	out := emptyTables()

	for _, row := range tables.Designs {
		if file(row.File) {
			out.Designs = append(out.Designs, row)
		}
	}
	for _, row := range tables.Signals {
		if file(row.File) && module(row.Module) {
			out.Signals = append(out.Signals, row)
		}
	}
	for _, row := range tables.Instances {
		if file(row.File) && scope(row.Scope) {
			out.Instances = append(out.Instances, row)
		}
	}
	for _, row := range tables.ShadowSets {
		if file(row.File) && scope(row.Scope) {
			out.ShadowSets = append(out.ShadowSets, row)
		}
	}
	for _, row := range tables.Blocks {
		if file(row.File) && scope(row.Scope) {
			out.Blocks = append(out.Blocks, row)
		}
	}
	for _, row := range tables.Statements {
		if file(row.File) && scope(row.Scope) {
			out.Statements = append(out.Statements, row)
		}
	}
	for _, row := range tables.References {
		if file(row.File) && scope(row.Scope) {
			out.References = append(out.References, row)
		}
	}
	for _, row := range tables.Diagnostics {
		if file(row.File) && (row.Scope == "" || scope(row.Scope)) {
			out.Diagnostics = append(out.Diagnostics, row)
		}
	}

	return out
}
