package entity

// Profile represents public user display info, owned by the identity service
// and read here only for rendering
type Profile struct {
	Id        string `json:"id" gorm:"column:id;primaryKey"`
	FullName  string `json:"full_name" gorm:"column:full_name"`
	AvatarUrl string `json:"avatar_url,omitempty" gorm:"column:avatar_url"`
	Email     string `json:"email,omitempty" gorm:"column:email"`
}

// TableName returns the table name for Profile
func (Profile) TableName() string {
	return "profiles"
}
