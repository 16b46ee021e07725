package llm

// tablePrompt is the instruction sent with every flyer image.
const tablePrompt = `You are reading one page of a grocery store flyer.

List every food product shown with its advertised price.

Return ONLY a JSON object with exactly two keys:
- "item": the product names, as written on the flyer
- "price": the matching prices, as written on the flyer (for example "4,99 $", "2/5$", "99¢")

Rules:
- Both arrays must have the same length and the same order; price[i] is the price of item[i]
- Skip products whose price is not visible
- Do not add any other key, comment or text
- If the page shows no priced product, return {"item": [], "price": []}`
