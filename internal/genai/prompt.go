package genai

import (
	"fmt"
	"strings"
)

// BuildPrompt produces the redesign instruction sent alongside the room
// photo. The wording asks the model to restyle without changing layout or
// perspective, and to answer with the image only.
func BuildPrompt(roomType, designStyle string) string {
	room := strings.ToLower(strings.TrimSpace(roomType))
	style := strings.ToLower(strings.TrimSpace(designStyle))

	return fmt.Sprintf(`Transform this %[1]s into a %[2]s interior design style.
Please redesign this room with the following requirements:
- Apply %[2]s aesthetic throughout the room
- Maintain the room's original layout and architectural features
- Enhance the lighting, furniture, and decor to match the %[2]s style
- Keep the same perspective and room structure
- Return only the redesigned image without any text or explanations

The image shows a %[1]s that needs to be redesigned in %[2]s style.`, room, style)
}
