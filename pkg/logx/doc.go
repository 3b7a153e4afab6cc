// Package logx is a thin structured-logging layer over zerolog.
//
// It exists so the rest of the codebase can log through a stable, small API
// while sink configuration (console/file, level) stays hot-swappable from
// the config reload path.
package logx
