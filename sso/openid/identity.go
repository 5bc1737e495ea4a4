package openid

import (
	"strings"

	"github.com/clovershell/onedev/sso"
)

// assembleIdentity maps validated userinfo claims into the normalized
// authenticated identity:
//
//   - email comes from the email claim and is required;
//   - the username comes from preferred_username, falling back to the
//     email, and in either case keeps only the local part of an
//     email-shaped value;
//   - the full name comes from the name claim and may be empty;
//   - when a groups claim is configured its value becomes the group list
//     (an absent claim means an empty list), otherwise the group list is
//     nil to signal membership management is not delegated.
func (c *Connector) assembleIdentity(userInfo map[string]interface{}) (*sso.Authenticated, error) {
	email := firstString(userInfo["email"])
	if strings.TrimSpace(email) == "" {
		return nil, ErrMissingEmailClaim
	}

	userName := firstString(userInfo["preferred_username"])
	if strings.TrimSpace(userName) == "" {
		userName = email
	}
	userName, _, _ = strings.Cut(userName, "@")

	fullName := firstString(userInfo["name"])

	var groupNames []string
	if c.config.GroupsClaim != "" {
		groupNames = []string{}
		if list, ok := userInfo[c.config.GroupsClaim].([]interface{}); ok {
			for _, group := range list {
				if name, ok := group.(string); ok {
					groupNames = append(groupNames, name)
				}
			}
		}
	}

	return &sso.Authenticated{
		UserName:      userName,
		Email:         email,
		FullName:      fullName,
		GroupNames:    groupNames,
		ConnectorName: c.config.Name,
	}, nil
}

// firstString extracts the first string from a claim value that may be
// either a scalar or a list.  It returns "" for anything else.
func firstString(claimValue interface{}) string {
	switch v := claimValue.(type) {
	case string:
		return v
	case []interface{}:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
