package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ErikCohenDev/consensus-council/internal/domain"
)

// TestParseAuditorResponse verifies that well-formed responses decode and
// malformed shapes are rejected at the boundary instead of becoming zero scores.
func TestParseAuditorResponse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
		check   func(t *testing.T, r *domain.AuditorResponse)
	}{
		{
			name: "complete response",
			body: `{"auditor_role":"security","overall_assessment":{"summary":"ok","overall_pass":true,"average_score":4.2,"top_risks":["x"],"quick_wins":[]},"blocking_issues":[{"severity":"HIGH","description":"d"}]}`,
			check: func(t *testing.T, r *domain.AuditorResponse) {
				assert.Equal(t, "security", r.AuditorRole)
				assert.InDelta(t, 4.2, r.Score(), 1e-9)
				assert.True(t, r.Passed())
				require.Len(t, r.BlockingIssues, 1)
				assert.Equal(t, domain.SeverityHigh, r.BlockingIssues[0].Severity)
			},
		},
		{
			name: "extra fields ignored",
			body: `{"auditor_role":"pm","confidence":0.9,"overall_assessment":{"average_score":3,"overall_pass":false,"extra":1}}`,
			check: func(t *testing.T, r *domain.AuditorResponse) {
				assert.Equal(t, "pm", r.AuditorRole)
				assert.Empty(t, r.BlockingIssues)
			},
		},
		{
			name:    "missing role",
			body:    `{"overall_assessment":{"average_score":3}}`,
			wantErr: domain.ErrMissingAuditorRole,
		},
		{
			name:    "blank role",
			body:    `{"auditor_role":"  ","overall_assessment":{"average_score":3}}`,
			wantErr: domain.ErrMissingAuditorRole,
		},
		{
			name:    "missing score",
			body:    `{"auditor_role":"pm","overall_assessment":{"overall_pass":true}}`,
			wantErr: domain.ErrMissingAverageScore,
		},
		{
			name:    "missing assessment",
			body:    `{"auditor_role":"pm"}`,
			wantErr: domain.ErrMissingAverageScore,
		},
		{
			name:    "array body",
			body:    `[{"auditor_role":"pm"}]`,
			wantErr: domain.ErrNotAnObject,
		},
		{
			name:    "string body",
			body:    `"hello"`,
			wantErr: domain.ErrNotAnObject,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := domain.ParseAuditorResponse([]byte(tt.body))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			tt.check(t, got)
		})
	}
}

func TestParseAuditorResponseInvalidJSON(t *testing.T) {
	_, err := domain.ParseAuditorResponse([]byte(`{"auditor_role": "pm",`))
	require.Error(t, err)

	_, err = domain.ParseAuditorResponse([]byte(`{"auditor_role":"pm","overall_assessment":{"average_score":"high"}}`))
	require.Error(t, err)
}

func TestSeverityIsKnown(t *testing.T) {
	for _, s := range domain.KnownSeverities {
		assert.True(t, s.IsKnown(), s)
	}
	assert.False(t, domain.Severity("blocker").IsKnown())
	assert.False(t, domain.Severity("").IsKnown())
}
