package services

import "fmt"

const (
	verifySubject = "Your Turbinix verification code"
	resetSubject  = "Your Turbinix password reset code"
)

func verifyBody(code string) string {
	return fmt.Sprintf("Your verification code is: %s\n\nIt expires in %d minutes.", code, int(CodeTTL.Minutes()))
}

func resetBody(code string) string {
	return fmt.Sprintf("Your password reset code is: %s\n\nIt expires in %d minutes. If you did not request a reset, you can ignore this email.", code, int(CodeTTL.Minutes()))
}
