// Package app wires the engine together: configuration, the isolated
// logger, workflow loading, matrix expansion, and the run lifecycle from
// dispatch to the final report.
package app
