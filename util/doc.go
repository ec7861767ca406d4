// Package util provides small generic helpers shared by rowflow packages.
package util
