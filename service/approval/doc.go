// Package approval tracks requests for human input and approval raised by
// waiting workflow steps, and the decisions people give in response.
package approval
