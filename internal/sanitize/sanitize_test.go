package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanDefaultRules(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "email domain rewritten then at stripped",
			input: "contact dev@aexp.com for access",
			want:  "contact devaexps.com for access",
		},
		{
			name:  "bare at removed",
			input: "user@example.com",
			want:  "userexample.com",
		},
		{
			name:  "internal token removed",
			input: "export aimid=12345",
			want:  "export =12345",
		},
		{
			name:  "whitespace trimmed",
			input: "  SELECT * FROM users  \n",
			want:  "SELECT * FROM users",
		},
		{
			name:  "clean content untouched",
			input: "func main() {}",
			want:  "func main() {}",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
	}

	c := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Clean(tt.input))
		})
	}
}

func TestCleanIdempotent(t *testing.T) {
	c := New()
	input := "db host: dbhost@aexp.internal aimid=9"
	once := c.Clean(input)
	assert.Equal(t, once, c.Clean(once))
}

func TestCleanCustomRules(t *testing.T) {
	c := New(Rule{Find: "secret", Replace: "[redacted]"})
	assert.Equal(t, "[redacted] sauce", c.Clean("secret sauce"))
	// Defaults not applied when custom rules given.
	assert.Equal(t, "a@b", c.Clean("a@b"))
}

func TestValidateProjectName(t *testing.T) {
	valid := []string{"billing-service", "my_repo", "app.v2", "X", "a1-b2.c3_d4"}
	for _, name := range valid {
		require.NoError(t, ValidateProjectName(name), name)
	}

	invalid := []string{"", "../etc", "a/b", `a\b`, "-leading", ".hidden", "has space"}
	for _, name := range invalid {
		err := ValidateProjectName(name)
		require.Error(t, err, name)
		assert.ErrorIs(t, err, ErrInvalidProjectName)
	}
}
