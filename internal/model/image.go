package model

// Image is a binary payload with its MIME type. Used both for the uploaded
// source photo and for the generated result.
type Image struct {
	Data     []byte
	MIMEType string
}

// EncodedImage is the wire form exchanged with the image service.
type EncodedImage struct {
	Data     string `json:"data"` // base64, standard encoding
	MIMEType string `json:"mimeType"`
}
