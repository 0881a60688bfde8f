// Package dbpf recompresses entries inside DBPF package files without
// changing their meaning, and can prove that a rewritten package is
// semantically identical to the original before it replaces it on disk.
//
// A package is a container file holding a header, an index of entries
// keyed by (type, group, instance[, resource]), optional holes, and a
// directory listing which entries are RefPack/QFS-compressed. The
// pipeline is:
//
//	Parse(old) -> Write(new) -> Parse(new) -> Validate(old, new)
//
// [ProcessPackage] runs the whole pipeline against a file on disk,
// writing to a temporary sibling and renaming over the original only
// after validation passes.
//
// # Quick start
//
// Recompress one file:
//
//	outcome, err := dbpf.ProcessPackage("mods/clothing.package", dbpf.ModeRecompress)
//	if err != nil {
//	    return err
//	}
//	if outcome.Status == dbpf.StatusRewritten {
//	    fmt.Printf("%d -> %d bytes\n", outcome.OldSize, outcome.NewSize)
//	}
//
// # Skip cache
//
// In recompress mode the writer stashes a signature hole recording the
// output file size. Re-parsing an untouched file finds the signature and
// [ProcessPackage] returns [StatusSkipped] without doing any work.
package dbpf
