package models

import "time"

// PaymentMethod identifies how a fee payment was made.
type PaymentMethod string

const (
	PaymentMethodCash        PaymentMethod = "CASH"
	PaymentMethodBankDeposit PaymentMethod = "BANK_TRANSFER"
	PaymentMethodMobileMoney PaymentMethod = "MOBILE_MONEY"
	PaymentMethodCard        PaymentMethod = "CARD"
)

// Valid reports whether the method belongs to the supported set.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankDeposit, PaymentMethodMobileMoney, PaymentMethodCard:
		return true
	}
	return false
}

// FeeStructure defines the fee components for a course, year and year of
// study. The total is always computed from the five components on read.
type FeeStructure struct {
	ID             string    `db:"id" json:"id"`
	CourseID       string    `db:"course_id" json:"course_id"`
	AcademicYearID string    `db:"academic_year_id" json:"academic_year_id"`
	YearOfStudy    int       `db:"year_of_study" json:"year_of_study"`
	TuitionFee     float64   `db:"tuition_fee" json:"tuition_fee"`
	ActivityFee    float64   `db:"activity_fee" json:"activity_fee"`
	LibraryFee     float64   `db:"library_fee" json:"library_fee"`
	LaboratoryFee  float64   `db:"laboratory_fee" json:"laboratory_fee"`
	OtherFees      float64   `db:"other_fees" json:"other_fees"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Total sums the five fee components.
func (f *FeeStructure) Total() float64 {
	return f.TuitionFee + f.ActivityFee + f.LibraryFee + f.LaboratoryFee + f.OtherFees
}

// FeeStructureDetail extends FeeStructure with joined display fields.
type FeeStructureDetail struct {
	FeeStructure
	CourseName       string  `db:"course_name" json:"course_name"`
	CourseCode       string  `db:"course_code" json:"course_code"`
	AcademicYearName string  `db:"academic_year_name" json:"academic_year_name"`
	TotalFee         float64 `json:"total_fee"`
}

// FeeStructureFilter scopes fee structure listings.
type FeeStructureFilter struct {
	CourseID       string
	AcademicYearID string
	YearOfStudy    int
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// FeePayment is a single payment made by a student toward an academic year.
// ReceiptNumber is generated once at creation and never changes; only
// verified payments count toward the student's total paid.
type FeePayment struct {
	ID              string        `db:"id" json:"id"`
	StudentID       string        `db:"student_id" json:"student_id"`
	AcademicYearID  string        `db:"academic_year_id" json:"academic_year_id"`
	Amount          float64       `db:"amount" json:"amount"`
	PaymentMethod   PaymentMethod `db:"payment_method" json:"payment_method"`
	ReferenceNumber string        `db:"reference_number" json:"reference_number"`
	ReceiptNumber   string        `db:"receipt_number" json:"receipt_number"`
	PaymentDate     time.Time     `db:"payment_date" json:"payment_date"`
	IsVerified      bool          `db:"is_verified" json:"is_verified"`
	VerifiedBy      *string       `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt      *time.Time    `db:"verified_at" json:"verified_at,omitempty"`
	Remarks         string        `db:"remarks" json:"remarks,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// FeePaymentDetail extends FeePayment with joined display fields.
type FeePaymentDetail struct {
	FeePayment
	StudentName      string  `db:"student_name" json:"student_name"`
	RegNumber        string  `db:"reg_number" json:"reg_number"`
	AcademicYearName string  `db:"academic_year_name" json:"academic_year_name"`
	VerifierName     *string `db:"verifier_name" json:"verifier_name,omitempty"`
}

// FeePaymentFilter scopes payment listings.
type FeePaymentFilter struct {
	StudentID      string
	AcademicYearID string
	Method         PaymentMethod
	Verified       *bool
	DateFrom       *time.Time
	DateTo         *time.Time
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// FeeBalance is the computed fee standing of a student for a year.
type FeeBalance struct {
	StudentID        string        `json:"student_id"`
	AcademicYearID   string        `json:"academic_year_id"`
	Structure        *FeeStructure `json:"structure,omitempty"`
	StructureMissing bool          `json:"structure_missing"`
	TotalFee         float64       `json:"total_fee"`
	TotalPaid        float64       `json:"total_paid"`
	Balance          float64       `json:"balance"`
}

// FeeStatement is the printable fee standing of a student.
type FeeStatement struct {
	Student  StudentDetail      `json:"student"`
	Balance  FeeBalance         `json:"balance"`
	Payments []FeePaymentDetail `json:"payments"`
}
