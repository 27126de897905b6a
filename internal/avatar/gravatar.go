package avatar

import (
	"crypto/md5"
	"fmt"
	"strings"
)

// DefaultURL derives the identicon assigned at registration. The same email
// always yields the same URL; case and surrounding spaces are ignored.
func DefaultURL(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return fmt.Sprintf("https://s.gravatar.com/avatar/%x?s=250&r=x&d=robohash", sum)
}
