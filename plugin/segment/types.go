// Package segment is a client for the external image segmentation service.
package segment

// API endpoints
const (
	EndpointSegmentImage = "/segment_image"
	EndpointImage        = "/image"
	EndpointImagesList   = "/images_list"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the chat history sent with a segmentation request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a segmentation call: the whole history plus the current base image.
type Request struct {
	History []Message
	// Image is the raw base image. ImageName is sent as the multipart filename.
	Image     []byte
	ImageName string
	// Classes optionally proposes object classes to segment.
	Classes []string
}

// Response is the service reply.
type Response struct {
	ChatResponse    string `json:"chatResponse"`
	MaskedImagePath string `json:"maskedImagePath"`
}

type classesPayload struct {
	Classes []string `json:"classes"`
}
