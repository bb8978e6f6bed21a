// Package monitor draws a live terminal dashboard over a running
// pipeline.Pipeline, one row per stage showing its PID, current
// state, and command line. Watch tallies the bytes drained from
// stdout and stderr, but the dashboard does not display them.
//
//	dash, err := monitor.New()
//	if err != nil {
//		return err
//	}
//	defer dash.Close()
//	return dash.Watch(p)
package monitor
