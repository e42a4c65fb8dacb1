package dto

type LoginRequest struct {
	Username string `form:"usuario" json:"usuario" binding:"required"`
	Password string `form:"clave" json:"clave" binding:"required"`
	Token    string `form:"g_recaptcha_token" json:"g_recaptcha_token" binding:"required"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}
