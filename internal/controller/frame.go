package controller

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Frame types on the controller wire protocol.
const (
	frameTypeAuth      = "AUTH"
	frameTypeEncrypted = "ENCRYPTED"
	frameTypeError     = "ERROR"
	frameTypePing      = "PING"
	frameTypePong      = "PONG"
)

// frame is the top-level JSON message exchanged with a controller.
// Encrypted frames carry an AES-256-CBC payload plus an HMAC-SHA256 over the
// serialized data object; plaintext frames (AUTH, ERROR, PING, PONG) carry
// only a type and, for errors, a message.
type frame struct {
	Type       string         `json:"type"`
	Data       *encryptedData `json:"data,omitempty"`
	MAC        string         `json:"mac,omitempty"`
	ErrMessage string         `json:"errMessage,omitempty"`
}

// encryptedData is the ciphertext envelope inside an ENCRYPTED frame.
// Field order matters: the MAC is computed over this object's JSON encoding.
type encryptedData struct {
	IV      string `json:"iv"`
	Payload string `json:"payload"`
}

// encryptionKey derives the 32-byte AES key from an API key string.
func encryptionKey(apiKey string) []byte {
	sum := sha256.Sum256([]byte(apiKey))
	return sum[:]
}

// sealFrame encrypts v into an ENCRYPTED frame using encKey (AES-256-CBC)
// and signs it with macKey (HMAC-SHA256).
func sealFrame(v interface{}, encKey, macKey []byte) (*frame, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	padded := padPKCS7(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	data := &encryptedData{
		IV:      base64.StdEncoding.EncodeToString(iv),
		Payload: base64.StdEncoding.EncodeToString(ciphertext),
	}

	mac, err := frameMAC(data, macKey)
	if err != nil {
		return nil, err
	}

	return &frame{
		Type: frameTypeEncrypted,
		Data: data,
		MAC:  base64.StdEncoding.EncodeToString(mac),
	}, nil
}

// openFrame verifies and decrypts an ENCRYPTED frame. A MAC mismatch or an
// undecryptable payload indicates the wrong API keys and is reported as
// ErrAuthentication.
func openFrame(f *frame, encKey, macKey []byte) ([]byte, error) {
	if f.Type != frameTypeEncrypted || f.Data == nil {
		return nil, fmt.Errorf("frame of type %q is not encrypted", f.Type)
	}

	expected, err := frameMAC(f.Data, macKey)
	if err != nil {
		return nil, err
	}
	received, err := base64.StdEncoding.DecodeString(f.MAC)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed frame mac", ErrAuthentication)
	}
	if !hmac.Equal(expected, received) {
		return nil, fmt.Errorf("%w: frame mac mismatch", ErrAuthentication)
	}

	iv, err := base64.StdEncoding.DecodeString(f.Data.IV)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(f.Data.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if len(iv) != aes.BlockSize || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: malformed ciphertext", ErrAuthentication)
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := unpadPKCS7(plaintext, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	return unpadded, nil
}

// frameMAC computes the HMAC-SHA256 of the serialized data object.
func frameMAC(data *encryptedData, macKey []byte) ([]byte, error) {
	serialized, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal frame data: %w", err)
	}
	h := hmac.New(sha256.New, macKey)
	h.Write(serialized)
	return h.Sum(nil), nil
}

func padPKCS7(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	padded := make([]byte, len(b)+n)
	copy(padded, b)
	for i := len(b); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func unpadPKCS7(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(b))
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, fmt.Errorf("invalid padding byte %d", n)
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, fmt.Errorf("inconsistent padding")
		}
	}
	return b[:len(b)-n], nil
}
