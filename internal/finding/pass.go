package finding

import (
	"fmt"

	"github.com/dshills/codeguard/internal/config"
	"github.com/dshills/codeguard/pkg/types"
)

// Pass is one detection pass run over every chunk
type Pass string

const (
	PassVulnerability Pass = "vulnerability"
	PassCodeReview    Pass = "code_review"
	PassAutoComment   Pass = "auto_comment"
)

// AllPasses lists passes in execution order
var AllPasses = []Pass{PassVulnerability, PassCodeReview, PassAutoComment}

// IssueType returns the issue type the pass produces
func (p Pass) IssueType() types.IssueType {
	return types.IssueType(p)
}

// DefaultSeverity is assigned when the backend reports an unknown severity
func (p Pass) DefaultSeverity() types.Severity {
	if p == PassVulnerability {
		return types.SeverityMedium
	}
	return types.SeverityInfo
}

// ParsePass validates a pass name
func ParsePass(s string) (Pass, error) {
	switch p := Pass(s); p {
	case PassVulnerability, PassCodeReview, PassAutoComment:
		return p, nil
	default:
		return "", fmt.Errorf("unknown pass %q", s)
	}
}

// EnabledPasses returns the passes switched on in cfg. The result is never
// nil, so a config with every pass off stays empty in NewGenerator.
func EnabledPasses(cfg config.PassesConfig) []Pass {
	passes := []Pass{}
	if cfg.Vulnerability {
		passes = append(passes, PassVulnerability)
	}
	if cfg.CodeReview {
		passes = append(passes, PassCodeReview)
	}
	if cfg.AutoComment {
		passes = append(passes, PassAutoComment)
	}
	return passes
}
