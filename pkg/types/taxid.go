package types

// ValidTaxID accepts a CPF (11 digits) or CNPJ (14 digits), formatted or
// not, with correct check digits. Repeated-digit sequences are rejected.
func ValidTaxID(value string) bool {
	digits := OnlyDigits(value)
	switch len(digits) {
	case 11:
		return !repeated(digits) && checkDigits(digits, cpfWeights(9), cpfWeights(10))
	case 14:
		return !repeated(digits) && checkDigits(digits, cnpjFirst, cnpjSecond)
	}
	return false
}

var (
	cnpjFirst  = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjSecond = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// cpfWeights returns n+1 down to 2.
func cpfWeights(n int) []int {
	w := make([]int, n)
	for i := range w {
		w[i] = n + 1 - i
	}
	return w
}

func checkDigits(digits string, first, second []int) bool {
	return verifier(digits, first) == int(digits[len(first)]-'0') &&
		verifier(digits, second) == int(digits[len(second)]-'0')
}

func verifier(digits string, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	if rem := sum % 11; rem >= 2 {
		return 11 - rem
	}
	return 0
}

func repeated(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}
