package descriptions

// Tool descriptions shown to MCP clients, with examples and workflows

const (
	// Template tools
	DetectFieldsDescription = `Find the fillable fields of a PDF template: name, kind and exact position on the page.

**When to use:** First step for any template you have not stamped before, or after the template changed.

**How it works:** Interactive form widgets are read directly (source "widgets"). Templates without a form are analysed by layout: printed labels followed by underlines, boxes or blank space become fields with a confidence score (source "layout"). Fields declared in the template's .yaml profile are added.

**Examples:**
• "Detect the fields of forms/safety-inspection.pdf"
• "Detect fields in toolbox-talk.pdf with confidence_floor 0.7 to drop weak guesses"

**Reading the result:**
• geometry is in PDF points, origin bottom-left, page is 0-based
• conflicts lists fields whose rectangles overlap; stamping rejects them
• warnings explain skipped widgets, rotated pages or ignored profile entries

**Best practices:** Review layout-detected fields with preview_document before stamping real data.`

	StampDocumentDescription = `Write values into a template at the detected field positions and save the stamped copy.

**When to use:** Producing a filled-in inspection sheet, sign-in register or permit from structured data.

**Value formats:**
• One record: {"worker_name": "Kim Minsu", "helmet": true, "date": "2024-05-01"}
• Repeating rows: {"entries": [{"worker_name": "Kim"}, {"worker_name": "Lee"}]} together with row_rule {"row_height": 20}
• Fields listed in row_rule.static are drawn once, from the first entry

**Output:** The template bytes are kept unchanged and the stamp is appended as an incremental update, so signatures and history of the template stay valid. Flags report values that were truncated, wrapped or contained characters the standard fonts cannot show.

**Common workflows:**
1. detect_fields → stamp_document with values → open output_path
2. open_session → set_field_value (repeat) → stamp_document with session_id

**Best practices:** Give output_path to keep the stamped file; without it only a summary is returned.`

	PreviewDocumentDescription = `Describe a template's pages and check field geometry before stamping.

**When to use:** Verifying that detected or declared fields sit where the blanks are.

**Options:**
• outline=true draws each field as a thin box with its name into a copy of the template (needs output_path to be saved)
• zoom with page returns hit targets in rendering-surface coordinates (origin top-left, scaled by zoom) for building an overlay UI

**Example:** "Preview forms/permit.pdf with outline and save it as previews/permit-fields.pdf"`

	// Editing session tools
	OpenSessionDescription = `Start an editing session seeded with the detected fields of a template.

**When to use:** Filling a form interactively, one field at a time, or correcting detection by hand.

**Result:** a session_id and the session's fields. Sessions live in memory until close_session or server restart.`

	SetFieldValueDescription = `Bind a value to a field of an editing session.

**Notes:** Unknown field names are rejected. An empty value clears the field. For checkboxes and radio buttons use "true", "yes", "on", "1" or "x" to tick.`

	PlaceFieldDescription = `Declare a field by hand at a pointer position on a rendered page.

**When to use:** Detection missed a blank. Click position (x, y) is on the page rendered at zoom, origin top-left; it marks the top-left corner of the new field. width and height are in PDF points.

**Notes:** The field must stay on the page and must not overlap another field. Names of detected fields cannot be redeclared.`

	MoveFieldDescription = `Change the rectangle of a field in an editing session, keeping its value.

**Notes:** Coordinates are PDF points with origin bottom-left. The new rectangle must stay on its page and must not overlap another field.`

	RemoveFieldDescription = `Drop a field from an editing session so it is not stamped.`

	ListMappingsDescription = `List the fields and bound values of an editing session.

**Options:** page and zoom additionally return the overlay hit targets of that page, each carrying the current value.`

	CloseSessionDescription = `Discard an editing session and its values.`

	// Information tools
	ServerInfoDescription = `Get server information, available tools, templates and usage guidance.

**When to use:** At the start of a conversation to learn the template directory, the supported field kinds and the recommended workflow.`
)
