package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFSType_String(t *testing.T) {
	tests := []struct {
		typ  FSType
		want string
	}{
		{FSTypeLocal, "local"},
		{FSTypeMemory, "memory"},
		{FSTypeRemote, "remote"},
		{FSTypeUnknown, "unknown"},
		{FSType(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.String())
		})
	}
}
