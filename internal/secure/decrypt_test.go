package secure_test

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/cardscan/internal/card"
	"github.com/zombor/cardscan/internal/secure"
	"github.com/zombor/cardscan/internal/secure/securetest"
)

const scenarioPayload = `{"completeScan":true,"finalOcr":{"card_number":{"value":"4111111111111111"},"expiry_date":{"value":"12/28"}}}`

func randomResult(r *rand.Rand) *card.ScanResult {
	result := &card.ScanResult{CompleteScan: r.Intn(2) == 0}
	if r.Intn(4) == 0 {
		return result
	}
	result.FinalOCR = map[string]card.OCRField{}
	// at least one field: an empty map is dropped by omitempty
	n := 1 + r.Intn(4)
	for i := 0; i < n; i++ {
		f := card.OCRField{Value: fmt.Sprintf("%d", r.Int63())}
		if r.Intn(2) == 0 {
			c := float64(r.Intn(101))
			f.Confidence = &c
		}
		result.FinalOCR[fmt.Sprintf("field_%d", i)] = f
	}
	if r.Intn(2) == 0 {
		c := float64(r.Intn(1001)) / 10
		result.OverallConfidence = &c
	}
	return result
}

var _ = Describe("Decryptor", func() {
	var (
		key       []byte
		decryptor *secure.Decryptor
	)

	BeforeEach(func() {
		key = []byte("0123456789abcdef")
		decryptor = secure.NewDecryptor(nil)
	})

	Describe("round trip", func() {
		It("returns a structurally identical result for generated payloads", func() {
			r := rand.New(rand.NewSource(GinkgoRandomSeed()))
			for i := 0; i < 200; i++ {
				want := randomResult(r)
				plaintext, err := json.Marshal(want)
				Expect(err).NotTo(HaveOccurred())

				sealed, err := securetest.SealCBC(plaintext, key)
				Expect(err).NotTo(HaveOccurred())

				got, err := decryptor.Decrypt(sealed, key)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal(want), "payload %s", plaintext)
			}
		})
	})

	Describe("Decrypt", func() {
		var (
			ciphertext string
			useKey     []byte
			result     *card.ScanResult
			err        error
		)

		BeforeEach(func() {
			ciphertext, err = securetest.SealCBC([]byte(scenarioPayload), key)
			Expect(err).NotTo(HaveOccurred())
			useKey = key
		})

		JustBeforeEach(func() {
			result, err = decryptor.Decrypt(ciphertext, useKey)
		})

		When("the key is correct", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("yields the scan result", func() {
				Expect(result.CompleteScan).To(BeTrue())
				Expect(result.FinalOCR["card_number"].Value).To(Equal("4111111111111111"))
				Expect(result.FinalOCR["expiry_date"].Value).To(Equal("12/28"))
			})

			It("validates into card fields", func() {
				extraction, vErr := card.NewValidator(0).Validate(result)
				Expect(vErr).NotTo(HaveOccurred())
				Expect(extraction.Fields).To(Equal(card.Fields{
					CardNumber: "4111111111111111",
					ExpiryDate: "12/28",
				}))
			})
		})

		When("the key is given as hex", func() {
			BeforeEach(func() {
				useKey = []byte(hex.EncodeToString(key))
			})

			It("decodes it", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(result.CompleteScan).To(BeTrue())
			})
		})

		When("the key is given as base64", func() {
			BeforeEach(func() {
				useKey = []byte(base64.StdEncoding.EncodeToString(key))
			})

			It("decodes it", func() {
				Expect(err).NotTo(HaveOccurred())
			})
		})

		When("the key is wrong", func() {
			BeforeEach(func() {
				useKey = []byte("fedcba9876543210")
			})

			It("returns a DecryptionError", func() {
				var decErr *secure.DecryptionError
				Expect(errors.As(err, &decErr)).To(BeTrue())
			})

			It("returns no result", func() {
				Expect(result).To(BeNil())
			})
		})

		When("the key has the wrong length", func() {
			BeforeEach(func() {
				useKey = []byte("short")
			})

			It("returns a DecryptionError wrapping ErrInvalidKeyLength", func() {
				Expect(err).To(BeAssignableToTypeOf(&secure.DecryptionError{}))
				Expect(errors.Is(err, secure.ErrInvalidKeyLength)).To(BeTrue())
			})
		})

		When("the ciphertext is not base64", func() {
			BeforeEach(func() {
				ciphertext = "CIPHERTEXT!!"
			})

			It("returns a DecryptionError", func() {
				Expect(err).To(BeAssignableToTypeOf(&secure.DecryptionError{}))
			})
		})

		When("the ciphertext is truncated", func() {
			BeforeEach(func() {
				raw, _ := base64.StdEncoding.DecodeString(ciphertext)
				ciphertext = base64.StdEncoding.EncodeToString(raw[:len(raw)-3])
			})

			It("returns a DecryptionError", func() {
				Expect(err).To(BeAssignableToTypeOf(&secure.DecryptionError{}))
			})
		})

		When("the plaintext is not JSON", func() {
			BeforeEach(func() {
				ciphertext, err = securetest.SealCBC([]byte("scan complete"), key)
				Expect(err).NotTo(HaveOccurred())
			})

			It("returns a DecryptionError", func() {
				Expect(err).To(BeAssignableToTypeOf(&secure.DecryptionError{}))
				Expect(err.Error()).To(ContainSubstring("parsing scan result"))
			})
		})

		When("the ciphertext is URL-safe base64 with line breaks", func() {
			BeforeEach(func() {
				raw, _ := base64.StdEncoding.DecodeString(ciphertext)
				enc := base64.RawURLEncoding.EncodeToString(raw)
				ciphertext = enc[:10] + "\n" + enc[10:]
			})

			It("decodes it", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(result.CompleteScan).To(BeTrue())
			})
		})
	})

	Describe("with the passphrase cipher", func() {
		BeforeEach(func() {
			c, err := secure.NewCipher("passphrase")
			Expect(err).NotTo(HaveOccurred())
			decryptor = secure.NewDecryptor(c)
		})

		It("decrypts a salted envelope", func() {
			sealed, err := securetest.SealPassphrase([]byte(scenarioPayload), []byte("any passphrase length"))
			Expect(err).NotTo(HaveOccurred())

			result, err := decryptor.Decrypt(sealed, []byte("any passphrase length"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.FinalOCR["card_number"].Value).To(Equal("4111111111111111"))
		})

		It("derives an AES-128 key by default", func() {
			sealed, err := securetest.SealPassphraseKeySize([]byte(scenarioPayload), []byte("pass"), 32)
			Expect(err).NotTo(HaveOccurred())

			_, err = decryptor.Decrypt(sealed, []byte("pass"))
			Expect(err).To(BeAssignableToTypeOf(&secure.DecryptionError{}))

			result, err := secure.NewDecryptor(secure.PassphraseCipher{KeySize: 32}).Decrypt(sealed, []byte("pass"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.CompleteScan).To(BeTrue())
		})

		It("rejects a payload without the envelope", func() {
			sealed, err := securetest.SealCBC([]byte(scenarioPayload), key)
			Expect(err).NotTo(HaveOccurred())

			_, err = decryptor.Decrypt(sealed, key)
			Expect(err).To(BeAssignableToTypeOf(&secure.DecryptionError{}))
		})
	})

	Describe("NewCipher", func() {
		It("rejects unknown names", func() {
			_, err := secure.NewCipher("rot13")
			Expect(err).To(MatchError(`unknown cipher "rot13"`))
		})
	})
})
