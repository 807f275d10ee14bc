package model

// LoginInput is the body of POST auth/login.
type LoginInput struct {
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
}

// RefreshTokenInput is the body of POST auth/refresh-token.
type RefreshTokenInput struct {
	RefreshToken string `json:"refreshToken"`
}

// User is the vendor profile returned on sign-in and cached with the session.
type User struct {
	ID          int      `json:"id"`
	PhoneNumber string   `json:"phoneNumber"`
	Roles       []string `json:"roles"`
}

// AuthTokenOutput is returned by login and refresh.
type AuthTokenOutput struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// Payment request statuses used by the API.
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusPaid      = "PAID"
	PaymentStatusExpired   = "EXPIRED"
	PaymentStatusCancelled = "CANCELLED"
)

// CreatePaymentRequestInput is the body of POST payment-requests.
type CreatePaymentRequestInput struct {
	Service     string  `json:"service" validate:"required"`
	Amount      float64 `json:"amount" validate:"gt=0"`
	TaxIncluded bool    `json:"taxIncluded"`
	Expiry      string  `json:"expiry" validate:"required"`
}

// UpdatePaymentRequestInput is the body of PATCH payment-requests/{id}.
// Only non-nil fields are sent.
type UpdatePaymentRequestInput struct {
	Status           *string `json:"status,omitempty" validate:"omitempty,oneof=PENDING PAID EXPIRED CANCELLED"`
	PaymentInvoiceID *string `json:"paymentInvoiceId,omitempty"`
	CustomerName     *string `json:"customerName,omitempty"`
	CustomerPhone    *string `json:"customerPhone,omitempty"`
	PaidAt           *string `json:"paidAt,omitempty"`
}

// PaymentRequestUser carries vendor-specific charges attached to a request.
type PaymentRequestUser struct {
	PlatformCharge float64 `json:"platformCharge"`
}

// PaymentRequest is a single payment link.
type PaymentRequest struct {
	ID            int                `json:"id"`
	Service       string             `json:"service"`
	Status        string             `json:"status"`
	CustomerName  *string            `json:"customerName,omitempty"`
	CustomerPhone *string            `json:"customerPhone,omitempty"`
	Amount        float64            `json:"amount"`
	Tax           *float64           `json:"tax,omitempty"`
	TaxIncluded   bool               `json:"taxIncluded"`
	BookingNumber *string            `json:"bookingNumber,omitempty"`
	Expiry        string             `json:"expiry"`
	PaidAt        *string            `json:"paidAt,omitempty"`
	CreatedAt     string             `json:"createdAt"`
	UpdatedAt     string             `json:"updatedAt"`
	User          PaymentRequestUser `json:"user"`
}

// AddServiceInput is the body of POST users/me/services.
type AddServiceInput struct {
	ServiceName string `json:"serviceName" validate:"required"`
}

// UpdateServiceInput is the body of PATCH users/me/services.
type UpdateServiceInput struct {
	OldServiceName string `json:"oldServiceName" validate:"required"`
	NewServiceName string `json:"newServiceName" validate:"required,nefield=OldServiceName"`
}
