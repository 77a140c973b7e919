// Package scenario writes and reads the solver's map and scenario files
// and decides where each robot should go.
//
// A Session walks one planning instance through its phases:
//
//	Empty -> GoalsAssigned -> MapWritten -> ScenarioWritten -> SolutionAvailable
//
// and falls back to Empty whenever the classified layout it was built from
// changes.
package scenario
