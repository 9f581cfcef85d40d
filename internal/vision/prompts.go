package vision

import (
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
)

func prompt(text string, a ...any) string {
	return fmt.Sprintf(strings.TrimSpace(dedent.Dedent(text)), a...)
}

var detectSystemPrompt = prompt(`
	You are an expert at identifying items in images for online marketplace listings.
	Analyze the image and identify the main item being sold. Be specific and accurate.`)

var detectUserPrompt = prompt(`
	What is the main item in this image? Provide a specific, concise name for the item
	(e.g., "iPhone 13 Pro", "Wooden Coffee Table", "Nike Air Jordan Sneakers").
	Answer on the first line as "Item: <name>". Also rate your confidence from 0-100
	on the next line as "Confidence: <number>".`)

var generateSystemPrompt = prompt(`
	You are an expert at creating compelling marketplace listings. Based on the item
	name and image, generate an attractive title, detailed description, and suggest a
	fair price. Format your response as JSON with keys: title, description, suggestedPrice.`)

const generateUserTemplate = `
	Create a marketplace listing for this %s. Include:
	1. An attractive, SEO-friendly title (under 80 characters)
	2. A detailed description highlighting key features, condition, and benefits (150-300 words)
	3. A suggested price in USD (just the number)

	Format as JSON: {"title": "...", "description": "...", "suggestedPrice": 0}`

func generateUserPrompt(itemName string) string {
	return prompt(generateUserTemplate, itemName)
}
