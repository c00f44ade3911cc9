// Package selector chooses a winner for a spin.
package selector
