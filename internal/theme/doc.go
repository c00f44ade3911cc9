// Package theme tracks whether a shell renders in dark mode.
package theme
