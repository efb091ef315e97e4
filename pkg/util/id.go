// Package util contains any functions used across the application that don't match
// any other package
package util

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// IDLength is the length of every primary key generated by NewID
const IDLength = 16

// NewID returns a random identifier used as the primary key of identities
// and generations
func NewID() (string, error) {
	return gonanoid.Generate(charset, IDLength)
}

// RandStr returns a random letter string of length n. It's meant for things that
// only need to look unique in logs like request IDs, so errors fall back to a fixed value
func RandStr(n int) string {
	s, err := gonanoid.Generate(charset, n)
	if err != nil {
		return "unknown"
	}

	return s
}
