// Package ssml turns plain text into the SSML markup consumed by the speech
// backend. It adds pause and emphasis cues for quotes, headings, ellipses,
// em-dashes and line breaks, and wraps the result in a single speak element.
package ssml
