package card

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseResult", func() {
	var (
		input  string
		result *ScanResult
		err    error
	)

	JustBeforeEach(func() {
		result, err = ParseResult([]byte(input))
	})

	When("the buffer is wiped after parsing", func() {
		It("keeps the parsed values", func() {
			buf := []byte(`{"completeScan": true, "finalOcr": {"card_number": {"value": "4111111111111111"}}}`)
			parsed, err := ParseResult(buf)
			Expect(err).NotTo(HaveOccurred())

			clear(buf)
			Expect(parsed.CompleteScan).To(BeTrue())
			Expect(parsed.FinalOCR["card_number"].Value).To(Equal("4111111111111111"))
		})
	})

	When("parsing camelCase JSON", func() {
		BeforeEach(func() {
			input = `{"completeScan": true, "finalOcr": {"card_number": {"value": "4111111111111111", "confidence": 97.5}}, "overallConfidence": 91}`
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("parses completion", func() {
			Expect(result.CompleteScan).To(BeTrue())
		})

		It("parses the field value and confidence", func() {
			Expect(result.FinalOCR["card_number"].Value).To(Equal("4111111111111111"))
			Expect(*result.FinalOCR["card_number"].Confidence).To(Equal(97.5))
		})

		It("parses overall confidence", func() {
			Expect(*result.OverallConfidence).To(Equal(91.0))
		})
	})

	When("parsing snake_case JSON with string confidences", func() {
		BeforeEach(func() {
			input = `{"complete_scan": true, "final_ocr": {"expiry_date": {"value": "12/28", "confidence": "88"}}, "overall_confidence": "72%"}`
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("parses the fields", func() {
			Expect(result.CompleteScan).To(BeTrue())
			Expect(result.FinalOCR["expiry_date"].Value).To(Equal("12/28"))
			Expect(*result.FinalOCR["expiry_date"].Confidence).To(Equal(88.0))
			Expect(*result.OverallConfidence).To(Equal(72.0))
		})
	})

	When("a value is numeric", func() {
		BeforeEach(func() {
			input = `{"completeScan": true, "finalOcr": {"card_number": {"value": 4111111111111111}}}`
		})

		It("keeps the digits as a string", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.FinalOCR["card_number"].Value).To(Equal("4111111111111111"))
		})
	})

	When("the JSON is wrapped in a code fence", func() {
		BeforeEach(func() {
			input = "```json\n{\"completeScan\": false}\n```"
		})

		It("parses it", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.CompleteScan).To(BeFalse())
			Expect(result.FinalOCR).To(BeNil())
		})
	})

	When("confidence is absent", func() {
		BeforeEach(func() {
			input = `{"completeScan": true, "finalOcr": {}}`
		})

		It("leaves it nil", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.OverallConfidence).To(BeNil())
			Expect(result.FinalOCR).To(BeEmpty())
		})
	})

	When("parsing invalid JSON", func() {
		BeforeEach(func() {
			input = "\x8a\x13garbage"
		})

		It("returns the error", func() {
			Expect(err).To(HaveOccurred())
		})
	})

	When("the confidence is not numeric", func() {
		BeforeEach(func() {
			input = `{"completeScan": true, "overallConfidence": "high"}`
		})

		It("returns the error", func() {
			Expect(err).To(HaveOccurred())
		})
	})
})
