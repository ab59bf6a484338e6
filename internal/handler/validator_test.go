package handler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestValidatorMessages(t *testing.T) {
	v := NewRequestValidator()

	assert.NoError(t, v.Validate(&createMovieReq{Title: "Heat", Description: "LA crime saga"}))
	assert.EqualError(t, v.Validate(&createMovieReq{Title: "Heat"}), "description is required")
	assert.EqualError(t, v.Validate(&createMovieReq{Title: "Heat", Description: strings.Repeat("x", 401)}),
		"description must be at most 400 characters")
	// max counts characters, not bytes
	assert.NoError(t, v.Validate(&createMovieReq{Title: strings.Repeat("é", 100), Description: "d"}))

	assert.EqualError(t, v.Validate(&credentialsReq{Email: "x@y.z", Password: "short"}),
		"password must be at least 8 characters")
	assert.EqualError(t, v.Validate(&addReactionReq{Reaction: "meh"}),
		"reaction must be one of: like hate LIKE HATE")
}
