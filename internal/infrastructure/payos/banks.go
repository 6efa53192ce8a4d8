package payos

// BankCodeMap maps Vietnamese bank names to PayOS bank codes (BIN)
var BankCodeMap = map[string]string{
	"VietinBank":       "970415",
	"Vietcombank":      "970436",
	"BIDV":             "970418",
	"Agribank":         "970405",
	"Techcombank":      "970407",
	"MB Bank":          "970422",
	"ACB":              "970416",
	"VPBank":           "970432",
	"Sacombank":        "970403",
	"VIB":              "970441",
	"HDBank":           "970437",
	"TPBank":           "970423",
	"SHB":              "970443",
	"SeABank":          "970440",
	"OCB":              "970448",
	"MSB":              "970426",
	"VietCapitalBank":  "970454",
	"SCB":              "970429",
	"LienVietPostBank": "970449",
	"VietABank":        "970427",
	"ABBank":           "970425",
	"NCB":              "970419",
	"BacABank":         "970409",
	"PVcomBank":        "970412",
	"Eximbank":         "970431",
	"KienlongBank":     "970452",
	"GPBank":           "970408",
	"PGBank":           "970430",
	"BaoVietBank":      "970438",
	"CAKE":             "546034",
	"Ubank":            "546035",
	"Timo":             "963388",
	"ViettelMoney":     "971005",
}

// GetBankCode returns the BIN for a bank name, empty when unsupported
func GetBankCode(bankName string) string {
	return BankCodeMap[bankName]
}
