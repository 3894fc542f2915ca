package compliance

// basePrompt encodes the UK passport compliance rules applied by the image
// backend: shadow neutralization, demographic-appropriate attire synthesis,
// anatomical fulfillment, and the background/lighting/crown-to-chin
// requirements. These are backend-side concerns and are not re-validated
// client-side.
const basePrompt = `
You are a high-end AI Portrait Architect specializing in UK Government compliance. Your task is to perform a professional "Demographic-Aware Anatomical Fulfillment" on the provided subject.

PHASE 1: SUBJECT ANALYSIS & SHADOW DETECTION
- Analyze the source image to determine the demographic: INFANT, CHILD, ADULT, or ELDERLY.
- Identify the exact facial features, skin tone, and head orientation.
- SHADOW AUDIT: Detect all "unnecessary shadows" including harsh side-lighting, shadows behind ears, shadows under the nose, and "double shadows" on the background.
- DISCARD ALL CLUTTER: Ignore background objects, hands of other people, furniture, or props. Extract ONLY the facial seed and neck.

PHASE 2: CONTEXTUAL CLOTHING SYNTHESIS
Based on the demographic identified in Phase 1, synthesize a brand new, high-quality torso with appropriate attire:
- FOR INFANTS (0-2): Neat, plain everyday clothing (e.g., a simple light-colored baby grow or plain crew-neck) in soft fabrics. NO formal wear.
- FOR CHILDREN (3-12): Clean, neat, age-appropriate smart-casual clothing (e.g., a plain polo shirt, a simple sweater, or a clean blouse). Avoid suits or "mini-adult" looks unless requested.
- FOR ADULTS (13-64): Sharp, professional formal attire (dark blazer/suit jacket over a white or light-colored button-down shirt).
- FOR ELDERLY (65+): Dignified, neat attire such as a professional cardigan, blazer, or formal shirt/blouse.

PHASE 3: ANATOMICAL FULFILLMENT & ALIGNMENT
- If the image is a partial head or half-body, you MUST fulfill the anatomy to create a complete mid-chest-up portrait.
- Reconstruct wide, symmetrical shoulders that match the identified demographic's frame.
- Ensure the neck connection is physiologically accurate and the skin tone matches the face perfectly.

PHASE 4: BACKGROUND, LIGHTING & COMPLIANCE
- SHADOW NEUTRALIZATION: Neutralize all detected unnecessary shadows. Apply a high-key lighting effect that fills in shadows across the face to ensure feature clarity.
- BACKGROUND: Solid, flat, shadowless Light Grey (hex: #D3D3D3) or Cream (hex: #FFFDD0).
- POSITION: Subject must face dead-center, eyes open (unless infant under 1 year), mouth closed, neutral expression.
- LIGHTING: Even "Balanced Flat Lighting" across the face and the new torso. Zero shadows on the background.
- DIMENSIONS: Head (crown to chin) must occupy 70-80% of the 35mm x 45mm vertical space.

CRITICAL: The result must be hyper-realistic. The clothing must look like it belongs to the person's age group. Neutralize every shadow that could lead to a government rejection.
`

// outputContract instructs the backend to append the structured result
// markers the adapter parses. The grammar is parsed defensively, so a model
// that ignores parts of this contract still yields a usable result.
const outputContract = `
After the image, append a compliance audit in exactly this format:
SCORE: <integer 0-100>
METRICS: {"Background": "Pass|Fail", "Lighting": "Pass|Fail", "Head Position": "Pass|Fail", "Expression": "Pass|Fail", "Attire": "Pass|Fail"}
REPORT: <one short paragraph describing the changes made and any residual compliance risks>
`

// BuildPrompt concatenates the fixed compliance template with an optional
// user directive. The directive is free text; the identity-preservation
// clause applies regardless of what it asks for.
func BuildPrompt(directive string) string {
	if directive == "" {
		return basePrompt + "\nExecute the full demographic analysis, shadow neutralization, anatomical fulfillment, and transformation now.\n" + outputContract
	}
	return basePrompt +
		"\nREFINEMENT OVERRIDE: " + directive +
		"\n\nIMPORTANT: Maintain facial identity and demographic-appropriate clothing regardless of these refinements.\n" +
		outputContract
}
