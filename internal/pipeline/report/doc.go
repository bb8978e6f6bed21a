// Package report serializes a finished pipeline.Pipeline into a
// stable JSON shape, for a front-end's -json flag.
//
//	rep := report.From(p)
//	return json.NewEncoder(os.Stdout).Encode(rep)
package report
