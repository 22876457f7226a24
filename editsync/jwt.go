package editsync

import (
	gojwt "github.com/golang-jwt/jwt/v5"
)

// claims of the session bearer token, used to attribute edits.
// the token is verified by the remote store, not locally.
type BySessionJwt struct {
	UserId    Id
	SessionId Id
	UserName  string
}

func ParseBySessionJwtUnverified(byJwt string) (*BySessionJwt, error) {
	parser := gojwt.NewParser()
	token, _, err := parser.ParseUnverified(byJwt, gojwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims := token.Claims.(gojwt.MapClaims)

	bySessionJwt := &BySessionJwt{}

	if userIdStr, ok := claims["user_id"].(string); ok {
		if userId, err := ParseId(userIdStr); err == nil {
			bySessionJwt.UserId = userId
		}
	}
	if sessionIdStr, ok := claims["session_id"].(string); ok {
		if sessionId, err := ParseId(sessionIdStr); err == nil {
			bySessionJwt.SessionId = sessionId
		}
	}
	if userName, ok := claims["user_name"].(string); ok {
		bySessionJwt.UserName = userName
	}

	return bySessionJwt, nil
}

type SessionAuth struct {
	ByJwt      string
	AppVersion string
}

func (self *SessionAuth) UserId() (Id, error) {
	bySessionJwt, err := ParseBySessionJwtUnverified(self.ByJwt)
	if err != nil {
		return Id{}, err
	}
	return bySessionJwt.UserId, nil
}

func (self *SessionAuth) SessionId() (Id, error) {
	bySessionJwt, err := ParseBySessionJwtUnverified(self.ByJwt)
	if err != nil {
		return Id{}, err
	}
	return bySessionJwt.SessionId, nil
}
