package assign

type WorkerCreation struct {
	Name        string   `json:"name" validate:"required"`
	Role        string   `json:"role" validate:"required"`
	Skills      []string `json:"skills"`
	AccessToken string   `json:"accessToken"`
}

type WorkerQuery struct {
	ActiveOnly bool `form:"activeOnly"`
}

type WorkerActivation struct {
	IsActive *bool `json:"isActive" validate:"required"`
}
