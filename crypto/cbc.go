package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

// Maximum plaintext size (1MB to prevent excessive memory usage)
const MaxMessageSize = 1024 * 1024

// Encrypt encrypts a plaintext with AES-256-CBC and PKCS#7 padding.
func Encrypt(plaintext, key, iv []byte) ([]byte, error) {
	if len(plaintext) > MaxMessageSize {
		return nil, &CryptoError{Op: "encrypt", Err: errors.New("message too large")}
	}
	if len(key) != KeySize {
		return nil, &CryptoError{Op: "encrypt", Err: errors.New("invalid key length")}
	}
	if len(iv) != IVSize {
		return nil, &CryptoError{Op: "encrypt", Err: errors.New("invalid IV length")}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &CryptoError{Op: "encrypt", Err: err}
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return ciphertext, nil
}

// Decrypt decrypts an AES-256-CBC ciphertext and strips PKCS#7 padding.
//
// Failures are returned as *CryptoError: truncated or misaligned ciphertext,
// wrong key or IV length, and bad padding all map to it so callers can fall
// back to a placeholder value for the affected frame.
func Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, &CryptoError{Op: "decrypt", Err: errors.New("invalid key length")}
	}
	if len(iv) != IVSize {
		return nil, &CryptoError{Op: "decrypt", Err: errors.New("invalid IV length")}
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, &CryptoError{Op: "decrypt", Err: errors.New("truncated ciphertext")}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: err}
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: err}
	}

	return plaintext, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}

	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, errors.New("bad padding")
	}

	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("bad padding")
		}
	}

	return data[:len(data)-padding], nil
}
