package model

// AuthUser 是外部认证服务签发的 token 中解析出的当前用户。
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// UserIDPtr 返回可空的用户 ID，匿名用户返回 nil。
func (u *AuthUser) UserIDPtr() *string {
	if u == nil || u.ID == "" {
		return nil
	}
	id := u.ID
	return &id
}
