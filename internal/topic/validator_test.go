package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateNameRejectsWildcards(t *testing.T) {
	assert.Error(t, ValidateName("a/+/b"))
	assert.Error(t, ValidateName("a/#"))
	assert.Error(t, ValidateName(""))
	assert.NoError(t, ValidateName("nas/panel/data"))
}

func TestValidateFilterAcceptsWildcards(t *testing.T) {
	assert.NoError(t, ValidateFilter("nas/+/data"))
	assert.NoError(t, ValidateFilter("nas/panel/#"))
	assert.NoError(t, ValidateFilter("#"))
	assert.NoError(t, ValidateFilter("+/+/+"))
}

func TestValidateFilterRejectsHashNotTerminal(t *testing.T) {
	err := ValidateFilter("nas/#/data")
	assert.Error(t, err, "'#' must be the last level per the strict terminal-position rule")
}

func TestValidateFilterRejectsHashSharingLevel(t *testing.T) {
	assert.Error(t, ValidateFilter("nas/panel#"))
	assert.Error(t, ValidateFilter("nas/panel+"))
}

func TestValidateFilterRejectsEmpty(t *testing.T) {
	assert.Error(t, ValidateFilter(""))
}

func TestValidateFilterAllowsEmptyLevels(t *testing.T) {
	assert.NoError(t, ValidateFilter("a//b"))
}
