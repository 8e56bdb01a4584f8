package guardrails

// Detector names a personal-data pattern that callers opt into per check.
type Detector string

const (
	Email                Detector = "email"
	Phone                Detector = "phone"
	CreditCard           Detector = "creditCard"
	PrivateKey           Detector = "privateKey"
	SocialSecurityNumber Detector = "socialSecurityNumber"
	PassportNumber       Detector = "passportNumber"
	DriverLicenseNumber  Detector = "driverLicenseNumber"
	NationalIDNumber     Detector = "nationalIdNumber"
	TaxIDNumber          Detector = "taxIdNumber"
	BankAccountNumber    Detector = "bankAccountNumber"
	CreditCardNumber     Detector = "creditCardNumber"
)

// piiPatterns are deliberately broad; numeric detectors overlap heavily.
var piiPatterns = map[Detector]string{
	Email:                "(?:[a-zA-Z0-9!#$%&'*+/=?^_`{|}~-]+(?:\\.[a-zA-Z0-9!#$%&'*+/=?^_`{|}~-]+)*|\"[^\\n\"]+\")@(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]*[a-zA-Z0-9])?\\.)+[a-zA-Z]{2,}",
	Phone:                `(?:(?:\+?\d{1,4}[ -]?)?(?:\(?\d{3}\)?[ -]?)?\d{3}[ -]?\d{4})`,
	CreditCard:           `\b(?:\d[ -]*?){13,16}\b`,
	PrivateKey:           `-----BEGIN (?:RSA |DSA |EC |OPENSSH )?PRIVATE KEY-----[\s\S]+?-----END (?:RSA |DSA |EC |OPENSSH )?PRIVATE KEY-----`,
	SocialSecurityNumber: `\b\d{3}-\d{2}-\d{4}\b`,
	PassportNumber:       `\b([A-PR-WYa-pr-wy][1-9]\d\s?\d{4}[1-9])\b`,
	DriverLicenseNumber:  `\b([A-Z]{1,2}\d{4,14})\b`,
	NationalIDNumber:     `\b\d{9,14}\b`,
	TaxIDNumber:          `\b\d{2}-\d{7}|\d{9}\b`,
	BankAccountNumber:    `\b\d{6,20}\b`,
	CreditCardNumber:     `\b(?:\d[ -]*?){13,16}\b`,
}

// AllPII lists every personal-data detector.
func AllPII() []Detector {
	return []Detector{
		Email, Phone, CreditCard, PrivateKey, SocialSecurityNumber, PassportNumber,
		DriverLicenseNumber, NationalIDNumber, TaxIDNumber, BankAccountNumber, CreditCardNumber,
	}
}

// Rule is a credential pattern. When Keywords is set, the rule only runs on
// content containing one of them.
type Rule struct {
	ID          string   `koanf:"id"`
	Description string   `koanf:"description"`
	Pattern     string   `koanf:"pattern"`
	Keywords    []string `koanf:"keywords"`
}

// DefaultRules covers the credentials most likely to be pasted into a chat.
// Gitleaks adds its own catalog on top.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "private-key",
			Description: "Private Key",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----[\s\S]*?(?:-----END (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----|$)`,
		},
		{
			ID:          "openrouter-api-key",
			Description: "OpenRouter API Key",
			Pattern:     `sk-or-v1-[A-Fa-f0-9]{64}`,
		},
		{
			ID:          "anthropic-api-key",
			Description: "Anthropic API Key",
			Pattern:     `sk-ant-[A-Za-z0-9_\-]{90,}`,
		},
		{
			ID:          "openai-api-key",
			Description: "OpenAI API Key",
			Pattern:     `sk-(?:proj-)?[A-Za-z0-9_\-]{40,}`,
		},
		{
			ID:          "aws-access-key-id",
			Description: "AWS Access Key ID",
			Pattern:     `\b(?:A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}\b`,
		},
		{
			ID:          "github-token",
			Description: "GitHub Token",
			Pattern:     `(?:ghp|gho|ghu|ghs)_[A-Za-z0-9]{36}|github_pat_[A-Za-z0-9_]{22,}`,
		},
		{
			ID:          "slack-token",
			Description: "Slack Token",
			Pattern:     `xox[baprs]-[A-Za-z0-9\-]{10,}`,
		},
		{
			ID:          "stripe-key",
			Description: "Stripe API Key",
			Pattern:     `(?:sk|rk)_(?:live|test)_[A-Za-z0-9]{24,}`,
		},
		{
			ID:          "database-url",
			Description: "Database Connection URL with credentials",
			Pattern:     `(?i)(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^:\s]+:[^@\s]+@[^\s]+`,
		},
		{
			ID:          "jwt",
			Description: "JSON Web Token",
			Pattern:     `eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`,
		},
		{
			ID:          "generic-api-key",
			Description: "Generic API Key",
			Pattern:     `(?i)(?:api[_-]?key|apikey|secret|password|passwd)\s*[:=]\s*['"]?[^\s'"]{12,}['"]?`,
			Keywords:    []string{"api", "key", "secret", "pass"},
		},
	}
}
