package fargate

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// maxELBName is the length limit for load balancer and target group names.
const maxELBName = 32

// elbName converts a logical name into a valid ELB name: alphanumerics and
// hyphens, no leading or trailing hyphen, at most 32 characters. Names that
// must be shortened keep a hash suffix so they stay distinct.
//
// Example:
//
//	elbName("nginx_rp-lb") // "nginx-rp-lb"
func elbName(logical string) string {
	var b strings.Builder
	for _, r := range logical {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	if len(name) <= maxELBName {
		return name
	}

	sum := sha256.Sum256([]byte(logical))
	suffix := hex.EncodeToString(sum[:])[:8]
	return strings.TrimRight(name[:maxELBName-len(suffix)-1], "-") + "-" + suffix
}

// targetGroupName derives the target group name for a listener.
func targetGroupName(listener string) string {
	return elbName(listener + "-tg")
}

// securityGroupName derives the security group name for a cluster.
func securityGroupName(cluster string) string {
	return cluster + "-sg"
}
